// Package password implements one-way password hashing with Argon2id.
//
// Hashes are self-describing PHC strings carrying their own salt and cost
// parameters, so the active [Params] can be raised over time without
// invalidating stored hashes. Verification distinguishes a wrong password
// (false, nil) from an unparseable hash (error).
package password
