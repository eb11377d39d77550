// Package password hashes account passwords with argon2id and derives
// encryption keys from passphrases.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// The package never stores or logs plaintext.
package password
