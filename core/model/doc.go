package model

// Package model holds the immutable description of a day-ahead planning
// problem: the time horizon, the fossil fleet, the renewable profile, the
// battery, the demand and the reliability policy. Instances carry no
// behaviour beyond validation.
