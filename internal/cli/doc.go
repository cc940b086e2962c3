// Package cli implements the sshp command line.
//
// There is a single root command: flags configure the run and the first
// positional argument starts the remote command, so
//
//	sshp -f hosts -m 10 ls -la
//
// passes "-la" to ls rather than parsing it. Flags are bound into viper by
// the config package, which layers them over SSHP_ environment variables,
// the config file and defaults.
//
// A run goes through these steps:
//
//  1. Load and validate config
//  2. Read the host list from -f or stdin
//  3. Build one ssh argv per host
//  4. Hand everything to the parallel scheduler, with signal handling
//     for SIGINT/SIGTERM (cancel) and SIGUSR1 (status)
//  5. Map the result to the process exit code
package cli
