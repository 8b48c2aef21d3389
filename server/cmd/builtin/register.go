// Package builtin implements the sub-commands every server carries under its
// root command, such as help, reload and plugin.
package builtin

import (
	"errors"

	"github.com/df-mc/plugintemplate/server"
	"github.com/df-mc/plugintemplate/server/cmd"
)

const (
	// PermissionAdmin is the node required by the administrative
	// sub-commands.
	PermissionAdmin = "plugintemplate.admin"
	// PermissionReload is the node required by the reload sub-command.
	PermissionReload = "plugintemplate.reload"
	// PermissionTest is the node checked by "test permissions".
	PermissionTest = "plugintemplate.test"
)

// Register registers the built-in sub-commands on the root command of srv.
// Sub-commands whose names are already taken are skipped and reported in the
// error returned.
func Register(srv *server.Server) error {
	var errs []error
	for _, spec := range Specs(srv) {
		if err := srv.Commands().Register(spec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Specs returns the built-in sub-commands bound to srv in the order they are
// listed by help.
func Specs(srv *server.Server) []cmd.Spec {
	return []cmd.Spec{
		helpSpec(srv),
		reloadSpec(srv),
		infoSpec(srv),
		statsSpec(srv),
		debugSpec(srv),
		listSpec(srv),
		langSpec(srv),
		permSpec(srv),
		pluginSpec(srv),
		testSpec(srv),
		cooldownsSpec(srv),
		gcSpec(srv),
		kickSpec(srv),
		whitelistSpec(srv),
	}
}
