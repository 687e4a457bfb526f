package splog

import (
	"strings"
	"sync"

	"github.com/cihub/seelog"
)

// seelogT adapts a seelog.LoggerInterface to T, prefixing messages
// with any accumulated context tags. Mirrors the delegate+mutex shape
// the agent's own log.Wrapper uses to serialize concurrent calls into
// a single underlying seelog logger, which is not safe for unsynchronized
// concurrent use across goroutines sharing one instance.
type seelogT struct {
	mu       *sync.Mutex
	delegate seelog.LoggerInterface
	prefix   string
}

// New builds a T backed by seelog, configured from xmlConfig. A nil or
// invalid config falls back to defaultConfig.
func New(xmlConfig []byte) T {
	if xmlConfig == nil {
		xmlConfig = defaultConfig()
	}
	logger, err := seelog.LoggerFromConfigAsBytes(xmlConfig)
	if err != nil {
		logger, _ = seelog.LoggerFromConfigAsBytes(defaultConfig())
	}
	return &seelogT{mu: &sync.Mutex{}, delegate: logger}
}

func (s *seelogT) tag(format string) string {
	if s.prefix == "" {
		return format
	}
	return s.prefix + " " + format
}

func (s *seelogT) Debugf(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delegate.Debugf(s.tag(format), args...)
}

func (s *seelogT) Infof(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delegate.Infof(s.tag(format), args...)
}

func (s *seelogT) Warnf(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.delegate.Warnf(s.tag(format), args...)
}

func (s *seelogT) Errorf(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.delegate.Errorf(s.tag(format), args...)
}

func (s *seelogT) Debug(args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delegate.Debug(s.withPrefix(args)...)
}

func (s *seelogT) Info(args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delegate.Info(s.withPrefix(args)...)
}

func (s *seelogT) Warn(args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.delegate.Warn(s.withPrefix(args)...)
}

func (s *seelogT) Error(args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.delegate.Error(s.withPrefix(args)...)
}

func (s *seelogT) withPrefix(args []interface{}) []interface{} {
	if s.prefix == "" {
		return args
	}
	return append([]interface{}{s.prefix}, args...)
}

func (s *seelogT) WithContext(tags ...string) T {
	child := &seelogT{mu: s.mu, delegate: s.delegate}
	if s.prefix != "" {
		child.prefix = s.prefix + " [" + strings.Join(tags, ",") + "]"
	} else {
		child.prefix = "[" + strings.Join(tags, ",") + "]"
	}
	return child
}

func (s *seelogT) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delegate.Flush()
}
