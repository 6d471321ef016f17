package config

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"mote/internal/errkind"
)

// CheckEngineVersion validates settings.RequiredEngineVersion, when set,
// against the running build's engineVersion. A mismatch is a startup
// condition (§6 "StartupError for oracle/grammar misconfiguration"
// covers settings-driven startup refusals generally), not a runtime
// error, so the CLI should treat it the same way.
func CheckEngineVersion(settings *Settings, engineVersion string) error {
	if settings.RequiredEngineVersion == "" {
		return nil
	}

	constraint, err := semver.NewConstraint(settings.RequiredEngineVersion)
	if err != nil {
		return fmt.Errorf("%w: invalid required_engine_version constraint %q: %v", errkind.ErrStartupError, settings.RequiredEngineVersion, err)
	}

	v, err := semver.NewVersion(engineVersion)
	if err != nil {
		return fmt.Errorf("%w: invalid engine version %q: %v", errkind.ErrStartupError, engineVersion, err)
	}

	if !constraint.Check(v) {
		return fmt.Errorf("%w: engine version %s does not satisfy required_engine_version %q", errkind.ErrStartupError, engineVersion, settings.RequiredEngineVersion)
	}
	return nil
}
