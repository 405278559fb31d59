// Package util provides small string helpers shared across apicap packages.
//
//   - Truncate: cut a string to a number of characters without splitting a rune
package util
