// Package progression holds the pure rules that evolve a user's progression
// state: inactivity decay, answer scoring, the hysteresis difficulty machine
// and the one-way answer digest. Nothing here touches a store or a clock.
package progression
