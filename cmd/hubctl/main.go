// Command hubctl administers an authhub deployment directly against its
// MongoDB stores: client registrations, provider credentials, user accounts
// and indexes.
package main

import "github.com/authhub/authhub/cmd/hubctl/cmd"

func main() {
	cmd.Execute()
}
