// Package password hashes and verifies account passwords.
//
// New hashes are Argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Accounts migrated from the previous platform carry bcrypt hashes
// ($2a$/$2b$/$2y$). [Multi] verifies both and reports bcrypt or
// weaker-parameter Argon2 hashes through NeedsUpgrade so the engine can
// re-hash on the next successful login.
//
// This package never stores passwords and never logs them.
package password
