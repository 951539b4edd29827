// Package classifier decides whether a bash command line is safe to run
// without asking a human first.
//
// A command is safe only when all of the following hold:
//
//   - after benign /dev/null and 2>&1 redirects are stripped, no unquoted,
//     unescaped metacharacter (< > ` $ ( ) { }) remains;
//   - every quote is closed and no escape is left dangling;
//   - every segment between unquoted |, ;, & and newlines is accepted by at
//     least one rule: the bare command whitelist, the subcommand whitelist,
//     the resource+action whitelist, the domain-tool whitelist, or the
//     forwarding rule (xargs and friends), which classifies its payload
//     recursively, one level deep.
//
// Anything else is unsafe. The classifier never executes anything and holds
// no mutable state, so a single *Classifier can be shared freely.
package classifier
