// Package addressing maps hardware addresses to IP addresses.
//
// An AddressSource answers single lookups; the Resolver polls a source until
// every requested MAC has an address or its attempt budget runs out, in which
// case a *TimeoutError lists the MACs that never resolved. MACs are compared
// case-insensitively and returned lower-cased.
package addressing
