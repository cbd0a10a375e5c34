package knowledge

import "github.com/miradorstack/pipeline-rca/internal/models"

func script(s string) *string { return &s }

// DefaultSolutions returns the built-in remediation templates.
func DefaultSolutions() []models.SolutionTemplate {
	return []models.SolutionTemplate{
		{
			ID:              "timeout-increase",
			Title:           "Increase pipeline step timeout",
			Description:     "Raise the timeout around long running steps and look for hanging work.",
			Category:        "timeout",
			Severity:        models.SeverityHigh,
			ProblemPatterns: []string{`time(d)?\s?out`, `deadline exceeded`, `build was aborted`},
			Tags:            []string{"timeout", "jenkinsfile", "performance"},
			Solutions: []models.SolutionStep{
				{Order: 1, Title: "Find the slow step", Description: "Compare stage durations against previous green builds.", RiskLevel: models.RiskLow, Required: true},
				{Order: 2, Title: "Raise the timeout", Description: "Wrap the step in a timeout block with a larger budget.", Commands: []string{"timeout(time: 60, unit: 'MINUTES') { sh './build.sh' }"}, RiskLevel: models.RiskLow, Required: true},
				{Order: 3, Title: "Split slow suites", Description: "Run long test suites in parallel stages.", RiskLevel: models.RiskMedium},
			},
			PreventionSteps:  []string{"Track stage duration trends", "Set explicit timeouts on every network call"},
			EstimatedFixTime: "15 minutes",
			SuccessRate:      85,
			Verified:         true,
			AutoFixScript:    script("options {\n  timeout(time: 60, unit: 'MINUTES')\n}"),
		},
		{
			ID:              "memory-heap",
			Title:           "Raise JVM heap and container memory",
			Description:     "Give the build more memory and cap parallel forks.",
			Category:        "memory",
			Severity:        models.SeverityCritical,
			ProblemPatterns: []string{`OutOfMemoryError`, `heap space`, `out of memory`, `OOMKilled`},
			Tags:            []string{"memory", "jvm", "agent"},
			Solutions: []models.SolutionStep{
				{Order: 1, Title: "Increase heap", Description: "Set MAVEN_OPTS or GRADLE_OPTS with a larger -Xmx.", Commands: []string{"export MAVEN_OPTS=\"-Xmx4g\""}, RiskLevel: models.RiskLow, Required: true},
				{Order: 2, Title: "Reduce forks", Description: "Lower test fork count on the agent.", Commands: []string{"mvn -DforkCount=1 test"}, RiskLevel: models.RiskLow},
				{Order: 3, Title: "Resize the agent", Description: "Move the job to an agent label with more memory.", RiskLevel: models.RiskMedium},
			},
			PreventionSteps:  []string{"Alert on agent memory saturation", "Profile tests that allocate heavily"},
			EstimatedFixTime: "20 minutes",
			SuccessRate:      78,
			Verified:         true,
			AutoFixScript:    script("environment {\n  MAVEN_OPTS = '-Xmx4g'\n  GRADLE_OPTS = '-Xmx4g'\n}"),
		},
		{
			ID:              "dependency-cache",
			Title:           "Refresh dependency cache",
			Description:     "Clear corrupt local caches and force a dependency refresh.",
			Category:        "dependency",
			Severity:        models.SeverityMedium,
			ProblemPatterns: []string{`could not resolve dependencies`, `artifact not found`, `npm ERR! 404`, `module not found`},
			Tags:            []string{"dependency", "maven", "npm", "cache"},
			Solutions: []models.SolutionStep{
				{Order: 1, Title: "Purge local cache", Description: "Remove the local repository cache for the failing artifact.", Commands: []string{"rm -rf ~/.m2/repository/<group>", "npm cache clean --force"}, RiskLevel: models.RiskLow, Required: true},
				{Order: 2, Title: "Force update", Description: "Re-run with forced snapshot updates.", Commands: []string{"mvn -U clean install"}, RiskLevel: models.RiskLow},
			},
			PreventionSteps:  []string{"Pin dependency versions", "Use a repository manager proxy"},
			EstimatedFixTime: "10 minutes",
			SuccessRate:      90,
			Verified:         true,
			AutoFixScript:    script("sh 'mvn -U dependency:purge-local-repository clean install'"),
		},
		{
			ID:              "compilation-toolchain",
			Title:           "Align compiler toolchain",
			Description:     "Fix compilation failures caused by toolchain drift or broken commits.",
			Category:        "compilation",
			Severity:        models.SeverityHigh,
			ProblemPatterns: []string{`compilation (error|failure)`, `cannot find symbol`, `syntax error`},
			Tags:            []string{"compilation", "toolchain"},
			Solutions: []models.SolutionStep{
				{Order: 1, Title: "Reproduce locally", Description: "Build the failing commit with the CI toolchain version.", RiskLevel: models.RiskLow, Required: true},
				{Order: 2, Title: "Pin the toolchain", Description: "Declare the JDK or compiler version in the Jenkinsfile tools block.", RiskLevel: models.RiskLow},
			},
			PreventionSteps:  []string{"Require green pre-merge builds"},
			EstimatedFixTime: "30 minutes",
			SuccessRate:      70,
			Verified:         false,
		},
		{
			ID:              "test-flaky",
			Title:           "Triage failing tests",
			Description:     "Separate real regressions from flaky tests.",
			Category:        "test_failure",
			Severity:        models.SeverityMedium,
			ProblemPatterns: []string{`tests? failed`, `AssertionError`, `there are test failures`},
			Tags:            []string{"tests", "flaky"},
			Solutions: []models.SolutionStep{
				{Order: 1, Title: "Read the report", Description: "Open the JUnit report for the first failing test.", RiskLevel: models.RiskLow, Required: true},
				{Order: 2, Title: "Rerun", Description: "Rerun the build to check for flakiness.", RiskLevel: models.RiskLow},
			},
			PreventionSteps:  []string{"Track flaky tests over time"},
			EstimatedFixTime: "45 minutes",
			SuccessRate:      65,
			Verified:         true,
		},
		{
			ID:              "network-retry",
			Title:           "Recover from network errors",
			Description:     "Check connectivity and add retries around flaky network calls.",
			Category:        "network",
			Severity:        models.SeverityHigh,
			ProblemPatterns: []string{`connection (refused|reset)`, `unknown host`, `could not resolve host`},
			Tags:            []string{"network", "dns", "proxy"},
			Solutions: []models.SolutionStep{
				{Order: 1, Title: "Check connectivity", Description: "Curl the remote host from the agent.", Commands: []string{"curl -v https://<host>"}, RiskLevel: models.RiskLow, Required: true},
				{Order: 2, Title: "Add retries", Description: "Wrap network steps in a retry block.", RiskLevel: models.RiskLow},
			},
			PreventionSteps:  []string{"Mirror external dependencies internally"},
			EstimatedFixTime: "20 minutes",
			SuccessRate:      75,
			Verified:         true,
			AutoFixScript:    script("retry(3) {\n  sh './build.sh'\n}"),
		},
		{
			ID:              "disk-cleanup",
			Title:           "Free agent disk space",
			Description:     "Clean workspaces and container images on the agent.",
			Category:        "disk_space",
			Severity:        models.SeverityCritical,
			ProblemPatterns: []string{`no space left on device`, `disk (full|quota exceeded)`},
			Tags:            []string{"disk", "agent", "docker"},
			Solutions: []models.SolutionStep{
				{Order: 1, Title: "Clean workspaces", Description: "Delete stale workspaces on the agent.", Commands: []string{"find /var/lib/jenkins/workspace -maxdepth 1 -mtime +7 -exec rm -rf {} +"}, RiskLevel: models.RiskMedium, Required: true},
				{Order: 2, Title: "Prune images", Description: "Remove dangling Docker images and build cache.", Commands: []string{"docker system prune -af"}, RiskLevel: models.RiskMedium},
			},
			PreventionSteps:  []string{"Enable workspace cleanup after each build", "Alert on agent disk usage"},
			EstimatedFixTime: "10 minutes",
			SuccessRate:      95,
			Verified:         true,
			AutoFixScript:    script("post {\n  always { cleanWs() }\n}"),
		},
		{
			ID:              "docker-daemon",
			Title:           "Restore Docker on the agent",
			Description:     "Ensure the Docker daemon is reachable and images exist.",
			Category:        "docker",
			Severity:        models.SeverityMedium,
			ProblemPatterns: []string{`cannot connect to the docker daemon`, `pull access denied`, `manifest unknown`},
			Tags:            []string{"docker", "registry"},
			Solutions: []models.SolutionStep{
				{Order: 1, Title: "Check the daemon", Description: "Verify the daemon is running and the jenkins user is in the docker group.", Commands: []string{"systemctl status docker"}, RiskLevel: models.RiskLow, Required: true},
				{Order: 2, Title: "Verify the image", Description: "Confirm the image tag exists in the registry.", RiskLevel: models.RiskLow},
			},
			PreventionSteps:  []string{"Pin image digests"},
			EstimatedFixTime: "15 minutes",
			SuccessRate:      80,
			Verified:         false,
			AutoFixScript:    script("sh 'sudo systemctl restart docker'"),
		},
	}
}
