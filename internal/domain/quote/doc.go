// Package quote prices a parcel or cash shipment.
//
// Calculation is pure: the only external input, the pickup distance, is
// resolved by the caller and passed in. Validation runs in a fixed order and
// the first failure is returned as a validation error.
package quote
