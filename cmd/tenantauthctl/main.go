// Command tenantauthctl runs operational tasks against a tenantauth PostgreSQL database:
// schema migration, system client bootstrap, temporary password resets and a login probe.
//
// Configuration comes from --config (YAML), then TENANTAUTH_* variables; a .env file is
// loaded first when present.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(newApp(os.Stdout, os.Stdin)).Execute(); err != nil {
		os.Exit(1)
	}
}
