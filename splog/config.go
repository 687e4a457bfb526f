package splog

// defaultConfig is the seelog XML handed to the adapter when the
// caller does not supply its own: a trimmed-down adaptive/rolling-file
// configuration reduced to a console-only logger, since a library has
// no fixed log directory of its own to roll files into. The adaptive
// flush strategy and message formats are kept.
func defaultConfig() []byte {
	return []byte(`
<seelog type="adaptive" mininterval="2000000" maxinterval="100000000" critmsgcount="500" minlevel="info">
    <outputs formatid="fmtinfo">
        <console formatid="fmtinfo"/>
    </outputs>
    <formats>
        <format id="fmtinfo" format="%Date %Time %LEVEL %Msg%n"/>
        <format id="fmtdebug" format="%Date %Time %LEVEL [%FuncShort @ %File.%Line] %Msg%n"/>
    </formats>
</seelog>
`)
}
