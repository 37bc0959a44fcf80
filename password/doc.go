// Package password implements password hashing, verification and policy.
//
// # Hashing
//
// New hashes are Argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Multi] verifies against Argon2id and bcrypt so that imported bcrypt credentials keep
// working; [Multi.NeedsRehash] reports when a stored hash should be replaced on the next
// successful login.
//
// # Policy
//
// [Policy] collects every violated strength rule in one pass, generates temporary
// passwords from crypto/rand, decides expiry and checks reuse against history hashes.
// It performs no I/O: callers supply hashes and receive decisions.
//
// Plaintext passwords are never logged. Stored hashes and history entries are only
// compared through [Hasher.Verify].
package password
