// Package operations holds the background-eligible devflow operations.
//
// Every operation takes no arguments. It reads its inputs from documented
// state keys, shells out to the relevant CLI (az, gh) through a Runner, and
// writes its outputs back to the state store. When the dry_run key is set it
// prints the command it would run instead of running it.
package operations
