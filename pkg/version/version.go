package version

import "fmt"

// SolverVersion indicates what version of the solver the binary belongs to
var SolverVersion string

// GitCommit indicates which git commit the binary was built from
var GitCommit string

// String returns a pretty string concatenation of SolverVersion and GitCommit
func String() string {
	return fmt.Sprintf("Solver Version: %s\n Git commit: %s\n", SolverVersion, GitCommit)
}
