// Package contract checks records against a declared list of fields before they are loaded.
//
// Every field has an optional source key, a type the raw value is coerced to, a default
// and a list of go-playground/validator rules. Records breaking the contract fail with a
// *ValidationError listing every offending field, so they can be quarantined.
package contract
