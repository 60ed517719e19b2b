// Package preflight runs the environment checks behind "otto doctor".
//
// Local checks cover the data directory, free disk space, the file
// descriptor limit and whether a catalog has been seeded. Collaborators
// (embedder, expansion LLM, cross-encoder) are checked through probes
// registered by the caller:
//
//	checker := preflight.New(dataDir,
//	    preflight.WithProbe(preflight.Probe{Name: "embedder", Required: true, Run: probeEmbedder}),
//	)
//	results := checker.RunAll(ctx)
//	if checker.HasCriticalFailures(results) {
//	    // exit non-zero
//	}
package preflight
