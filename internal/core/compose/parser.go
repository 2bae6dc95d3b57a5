package compose

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/colav/quyca-launcher/internal/core/domain"
	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"github.com/docker/go-connections/nat"
	"gopkg.in/yaml.v3"
)

// ProjectName is the compose project name used when loading documents.
const ProjectName = "quyca"

// =============================================================================
// Parser Functions
// =============================================================================

// ParseProfiles parses Docker Compose YAML into deployment profiles, one per
// service, sorted by service name. Relative bind-mount sources and build
// contexts are joined onto projectDir.
// This is a pure function - no I/O, no side effects.
func ParseProfiles(yamlContent, projectDir string) ([]domain.DeploymentProfile, error) {
	if strings.TrimSpace(yamlContent) == "" {
		return nil, ErrEmptyInput
	}

	project, err := loadComposeSpec(yamlContent)
	if err != nil {
		return nil, err
	}

	if err := checkUnsupportedFeatures(project); err != nil {
		return nil, err
	}

	if len(project.Services) == 0 {
		return nil, ErrNoServices
	}

	names := make([]string, 0, len(project.Services))
	for name := range project.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	profiles := make([]domain.DeploymentProfile, 0, len(names))
	for _, name := range names {
		p, err := convertService(project.Services[name], projectDir)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// loadComposeSpec loads a compose spec using compose-go
func loadComposeSpec(yamlContent string) (*types.Project, error) {
	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlContent), &dict); err != nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}
	if dict == nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Content: []byte(yamlContent),
				Config:  dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName(ProjectName, false)
		opts.SkipValidation = false
		opts.SkipInterpolation = false
		// Paths are resolved against the launcher's project dir, not the process cwd.
		opts.ResolvePaths = false
		opts.SkipNormalization = true
		opts.SkipExtends = true
		// env_file contents belong to the application, not the launcher.
		opts.SkipResolveEnvironment = true
	})
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "empty compose file") {
			return nil, NewParseError("", "compose spec has no services", ErrNoServices)
		}
		return nil, NewParseError("", errStr, ErrInvalidYAML)
	}

	return project, nil
}

// checkUnsupportedFeatures checks for features the launcher does not carry
func checkUnsupportedFeatures(project *types.Project) error {
	if len(project.Secrets) > 0 {
		return NewParseError("secrets", "secrets are not supported", ErrUnsupportedFeature)
	}
	if len(project.Configs) > 0 {
		return NewParseError("configs", "configs are not supported", ErrUnsupportedFeature)
	}
	for _, svc := range project.Services {
		if svc.Extends != nil && svc.Extends.File != "" {
			return NewParseError("services."+svc.Name+".extends", "extends is not supported", ErrUnsupportedFeature)
		}
	}
	return nil
}

// convertService converts a compose-go service to a deployment profile
func convertService(svc types.ServiceConfig, projectDir string) (domain.DeploymentProfile, error) {
	field := "services." + svc.Name

	if svc.Build == nil {
		return domain.DeploymentProfile{}, NewParseError(field+".build", "service must define a build section", ErrServiceNoBuild)
	}

	p := domain.DeploymentProfile{
		Name:             svc.Name,
		BuildTarget:      domain.BuildTarget(svc.Build.Target),
		ImageReference:   svc.Image,
		WorkingDirectory: svc.WorkingDir,
		BuildContext:     resolveHostPath(svc.Build.Context, projectDir),
		Dockerfile:       svc.Build.Dockerfile,
	}
	if p.ImageReference == "" {
		p.ImageReference = DefaultImage(svc.Name)
	}
	if p.Dockerfile == "" {
		p.Dockerfile = "Dockerfile"
	}

	// Entrypoint and command together form the process invocation.
	p.EntrypointCommand = append(p.EntrypointCommand, svc.Entrypoint...)
	p.EntrypointCommand = append(p.EntrypointCommand, svc.Command...)

	mode, err := convertNetworkMode(svc.NetworkMode)
	if err != nil {
		return domain.DeploymentProfile{}, NewParseError(field+".network_mode", err.Error(), ErrUnsupportedMode)
	}
	p.NetworkMode = mode

	restart, maxRestarts, err := convertRestart(svc)
	if err != nil {
		return domain.DeploymentProfile{}, NewParseError(field+".restart", err.Error(), ErrInvalidRestart)
	}
	p.RestartPolicy = restart
	p.MaxRestarts = maxRestarts

	for i, v := range svc.Volumes {
		if v.Type != "" && v.Type != types.VolumeTypeBind {
			return domain.DeploymentProfile{}, NewParseError(
				fmt.Sprintf("%s.volumes[%d]", field, i),
				fmt.Sprintf("only bind mounts are supported, got %q", v.Type),
				ErrInvalidVolume,
			)
		}
		p.VolumeMounts = append(p.VolumeMounts, domain.VolumeMount{
			HostPath:      resolveHostPath(v.Source, projectDir),
			ContainerPath: v.Target,
			ReadOnly:      v.ReadOnly,
		})
	}

	envNames := make([]string, 0, len(svc.Environment))
	for k, v := range svc.Environment {
		if v != nil {
			envNames = append(envNames, k)
		}
	}
	sort.Strings(envNames)
	for _, k := range envNames {
		p.Environment = append(p.Environment, domain.EnvVar{Name: k, Value: *svc.Environment[k]})
	}

	if len(svc.EnvFiles) > 0 {
		p.EnvFile = svc.EnvFiles[0].Path
	}

	for i, raw := range svc.Expose {
		port, err := parseExposedPort(raw)
		if err != nil {
			return domain.DeploymentProfile{}, NewParseError(
				fmt.Sprintf("%s.expose[%d]", field, i),
				err.Error(),
				ErrInvalidPort,
			)
		}
		p.Ports = append(p.Ports, port)
	}

	return p, nil
}

// DefaultImage is the tag used when a service declares no image.
func DefaultImage(service string) string {
	return fmt.Sprintf("%s-%s:latest", ProjectName, service)
}

func convertNetworkMode(mode string) (domain.NetworkMode, error) {
	switch mode {
	case "", "default", "bridge":
		return domain.NetworkModeBridge, nil
	case "host":
		return domain.NetworkModeHost, nil
	case "none":
		return domain.NetworkModeNone, nil
	}
	return "", fmt.Errorf("network mode %q is not supported", mode)
}

// convertRestart reads the service-level restart key, falling back to
// deploy.restart_policy. The retry limit comes from "on-failure:N" or
// deploy.restart_policy.max_attempts.
func convertRestart(svc types.ServiceConfig) (domain.RestartPolicy, int, error) {
	if svc.Restart != "" {
		return domain.ParseRestartSpec(svc.Restart)
	}
	rp := svc.Deploy
	if rp == nil || rp.RestartPolicy == nil {
		return domain.RestartNever, 0, nil
	}

	var policy domain.RestartPolicy
	switch rp.RestartPolicy.Condition {
	case "any":
		policy = domain.RestartAlways
	case "none":
		policy = domain.RestartNever
	default:
		var err error
		if policy, err = domain.ParseRestartPolicy(rp.RestartPolicy.Condition); err != nil {
			return "", 0, err
		}
	}

	if rp.RestartPolicy.MaxAttempts == nil || *rp.RestartPolicy.MaxAttempts == 0 {
		return policy, 0, nil
	}
	if policy != domain.RestartOnFailure {
		return "", 0, fmt.Errorf("%w: max_attempts needs condition on-failure", domain.ErrUnknownRestartPolicy)
	}
	return policy, int(*rp.RestartPolicy.MaxAttempts), nil
}

func parseExposedPort(raw string) (int, error) {
	_, port := nat.SplitProtoPort(raw)
	n, err := nat.ParsePort(port)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("port %q must be between 1 and 65535", raw)
	}
	return n, nil
}

// resolveHostPath joins relative paths onto projectDir and makes them
// absolute. Absolute paths, home paths and remote references (git URLs) pass
// through. Against a remote projectDir only "." resolves, to the reference
// itself; other relative paths are returned unchanged.
func resolveHostPath(p, projectDir string) string {
	if p == "" || projectDir == "" {
		return p
	}
	if filepath.IsAbs(p) || strings.HasPrefix(p, "~") || isRemoteRef(p) {
		return p
	}
	if isRemoteRef(projectDir) {
		if filepath.Clean(p) == "." {
			return projectDir
		}
		return p
	}
	joined := filepath.Join(projectDir, p)
	if abs, err := filepath.Abs(joined); err == nil {
		return abs
	}
	return joined
}

func isRemoteRef(ref string) bool {
	url, _, _ := strings.Cut(ref, "#")
	return strings.Contains(url, "://") || strings.HasPrefix(url, "git@") || strings.HasSuffix(url, ".git")
}

// =============================================================================
// Variable Extraction
// =============================================================================

// variablePlaceholderRegex matches ${VAR_NAME} or ${VAR_NAME:-default}
var variablePlaceholderRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-[^}]*)?\}`)

// ExtractVariablesFromYAML extracts environment variable placeholders from raw YAML content.
// This extracts variable names before compose-go interpolates them.
// Returns unique variable names without the ${} wrapper.
func ExtractVariablesFromYAML(yamlContent string) []string {
	seen := make(map[string]bool)
	var vars []string

	matches := variablePlaceholderRegex.FindAllStringSubmatch(yamlContent, -1)
	for _, match := range matches {
		if len(match) >= 2 {
			varName := match[1]
			if !seen[varName] {
				seen[varName] = true
				vars = append(vars, varName)
			}
		}
	}

	return vars
}
