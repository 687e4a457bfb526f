// Package pipeline implements the Pipeline scalability protocols:
// Push0 fans a send out to one ready pipe via round-robin fair
// scheduling, and Pull0 fair-receives from every attached pipe, per
// spec.md section 4.6.4.
package pipeline
