package engine

import "github.com/miradorstack/pipeline-rca/internal/models"

// DefaultCategories returns the ordered failure category table. Order matters:
// classification returns the first category with any matching pattern.
func DefaultCategories() []models.FailureCategory {
	return []models.FailureCategory{
		{
			ID:          "timeout",
			Name:        "Timeout",
			Description: "A step or the whole build exceeded its allotted time.",
			Patterns:    []string{"timeout", "timed out", "deadline exceeded", "took too long", "build was aborted"},
			Severity:    models.SeverityHigh,
			CommonCauses: []string{
				"Slow or hanging tests",
				"Unresponsive external service",
				"Timeout configured too low for the workload",
			},
			Solutions: []string{
				"Increase the step or pipeline timeout",
				"Check external services the build depends on",
				"Profile and parallelise slow test suites",
			},
			AutoFixAvailable: true,
		},
		{
			ID:          "memory",
			Name:        "Out of Memory",
			Description: "The build process or an agent ran out of memory.",
			Patterns:    []string{"outofmemoryerror", "out of memory", "heap space", "memory limit exceeded", "oomkilled", "cannot allocate memory"},
			Severity:    models.SeverityCritical,
			CommonCauses: []string{
				"JVM heap too small for the build",
				"Memory leak in tests",
				"Too many parallel executors on one agent",
			},
			Solutions: []string{
				"Increase heap size (-Xmx) or container memory limits",
				"Reduce build parallelism on the agent",
				"Investigate leaking tests with a heap dump",
			},
			AutoFixAvailable: true,
		},
		{
			ID:          "dependency",
			Name:        "Dependency Resolution",
			Description: "A library or package could not be resolved or downloaded.",
			Patterns:    []string{"could not resolve dependencies", "dependency", "module not found", "no matching version", "artifact not found", "npm err! 404"},
			Severity:    models.SeverityMedium,
			CommonCauses: []string{
				"Artifact removed or never published",
				"Repository mirror unavailable",
				"Version constraint conflict",
			},
			Solutions: []string{
				"Verify the dependency version exists in the repository",
				"Clear the local package cache and retry",
				"Pin conflicting transitive dependencies",
			},
			AutoFixAvailable: true,
		},
		{
			ID:          "compilation",
			Name:        "Compilation Error",
			Description: "Source code failed to compile.",
			Patterns:    []string{"compilation error", "compilation failure", "cannot find symbol", "syntax error", "undefined reference", "compiler error"},
			Severity:    models.SeverityHigh,
			CommonCauses: []string{
				"Broken commit merged to the branch",
				"Toolchain version mismatch",
				"Generated sources out of date",
			},
			Solutions: []string{
				"Inspect the compiler output for the first error",
				"Align local and CI toolchain versions",
				"Regenerate sources and rebuild",
			},
			AutoFixAvailable: false,
		},
		{
			ID:          "test_failure",
			Name:        "Test Failure",
			Description: "One or more automated tests failed.",
			Patterns:    []string{"tests failed", "test failed", "assertion", "failing tests", "expected but was", "there are test failures"},
			Severity:    models.SeverityMedium,
			CommonCauses: []string{
				"Regression introduced by a recent change",
				"Flaky test depending on timing or order",
				"Test data drift",
			},
			Solutions: []string{
				"Review the failing test report",
				"Rerun to check for flakiness",
				"Quarantine known flaky tests",
			},
			AutoFixAvailable: false,
		},
		{
			ID:          "network",
			Name:        "Network Error",
			Description: "A network connection failed during the build.",
			Patterns:    []string{"connection refused", "connection reset", "unknown host", "network is unreachable", "could not resolve host", "ssl handshake"},
			Severity:    models.SeverityHigh,
			CommonCauses: []string{
				"Remote service down",
				"DNS resolution failure",
				"Proxy or firewall misconfiguration",
			},
			Solutions: []string{
				"Check connectivity from the agent to the remote host",
				"Verify DNS and proxy settings",
				"Retry with backoff for transient failures",
			},
			AutoFixAvailable: true,
		},
		{
			ID:          "permission",
			Name:        "Permission Denied",
			Description: "The build lacked permission for a file, registry or API.",
			Patterns:    []string{"permission denied", "access denied", "403 forbidden", "unauthorized", "operation not permitted"},
			Severity:    models.SeverityHigh,
			CommonCauses: []string{
				"Expired or missing credentials",
				"Wrong file ownership on the workspace",
				"Insufficient role on the target system",
			},
			Solutions: []string{
				"Rotate or re-bind the Jenkins credentials",
				"Fix workspace ownership and modes",
				"Request the required role for the service account",
			},
			AutoFixAvailable: false,
		},
		{
			ID:          "disk_space",
			Name:        "Disk Space",
			Description: "The agent ran out of disk space.",
			Patterns:    []string{"no space left on device", "disk full", "disk quota exceeded", "insufficient disk space"},
			Severity:    models.SeverityCritical,
			CommonCauses: []string{
				"Old workspaces never cleaned",
				"Docker images and layers accumulating",
				"Large build artifacts retained",
			},
			Solutions: []string{
				"Clean old workspaces on the agent",
				"Prune unused Docker images",
				"Configure artifact retention",
			},
			AutoFixAvailable: true,
		},
		{
			ID:          "docker",
			Name:        "Docker Error",
			Description: "A container build or run step failed.",
			Patterns:    []string{"docker", "cannot connect to the docker daemon", "pull access denied", "manifest unknown", "container exited"},
			Severity:    models.SeverityMedium,
			CommonCauses: []string{
				"Docker daemon not running on the agent",
				"Image tag missing from the registry",
				"Dockerfile step failing",
			},
			Solutions: []string{
				"Verify the Docker daemon is running",
				"Check the image name and tag",
				"Build the Dockerfile locally to reproduce",
			},
			AutoFixAvailable: true,
		},
		{
			ID:          "configuration",
			Name:        "Configuration Error",
			Description: "The job or build configuration is invalid.",
			Patterns:    []string{"configuration error", "invalid configuration", "missing property", "environment variable", "no such file or directory", "not configured"},
			Severity:    models.SeverityMedium,
			CommonCauses: []string{
				"Missing environment variable or secret",
				"Invalid Jenkinsfile syntax",
				"Path assumptions that differ on the agent",
			},
			Solutions: []string{
				"Validate the Jenkinsfile with the linter",
				"Check required environment variables are defined",
				"Verify paths referenced by the build exist",
			},
			AutoFixAvailable: false,
		},
	}
}

// UnknownCategory is substituted when no category pattern matches.
func UnknownCategory() models.FailureCategory {
	return models.FailureCategory{
		ID:               models.UnknownCategoryID,
		Name:             "Unknown Failure",
		Description:      "The failure did not match any known category.",
		Patterns:         []string{},
		Severity:         models.SeverityMedium,
		CommonCauses:     []string{},
		Solutions:        []string{"Review the full build log for error details"},
		AutoFixAvailable: false,
	}
}
