package models

import "fmt"

// Target is a dbt build target environment
type Target string

const (
	TargetDev    Target = "dev"
	TargetBuild  Target = "build"
	TargetProd   Target = "prod"
	TargetProdCI Target = "prod-ci"
)

// ParseTarget validates a target name from the command line
func ParseTarget(s string) (Target, error) {
	switch Target(s) {
	case TargetDev, TargetBuild, TargetProd, TargetProdCI:
		return Target(s), nil
	}
	return "", fmt.Errorf("invalid target %q: must be one of dev, build, prod, prod-ci", s)
}

// IsDev reports whether this is the development target
func (t Target) IsDev() bool { return t == TargetDev }
