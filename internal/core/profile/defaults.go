package profile

import "github.com/colav/quyca-launcher/internal/core/domain"

// Default image references and container layout for the quyca application.
const (
	DevImage          = "colav/quyca-dev:dev"
	ProdImage         = "colav/quyca-prod:latest"
	AppDir            = "/app"
	DefaultAppPort    = 8000
	ProfileDev        = "dev"
	ProfileProd       = "prod"
	DefaultContext    = "."
	DefaultDockerfile = "Dockerfile"
)

// Entrypoint is the fixed process invocation shared by both profiles.
func Entrypoint() []string {
	return []string{"pipenv", "run", "python", "./app/app.py"}
}

// Defaults returns the dev and prod profiles. projectDir is the host directory
// live-mounted at /app.
func Defaults(projectDir string) []domain.DeploymentProfile {
	if projectDir == "" {
		projectDir = DefaultContext
	}
	base := func(name string, target domain.BuildTarget, image string) domain.DeploymentProfile {
		return domain.DeploymentProfile{
			Name:              name,
			BuildTarget:       target,
			ImageReference:    image,
			NetworkMode:       domain.NetworkModeHost,
			RestartPolicy:     domain.RestartOnFailure,
			VolumeMounts:      []domain.VolumeMount{{HostPath: projectDir, ContainerPath: AppDir}},
			WorkingDirectory:  AppDir,
			EntrypointCommand: Entrypoint(),
			BuildContext:      projectDir,
			Dockerfile:        DefaultDockerfile,
			Environment:       []domain.EnvVar{{Name: "ENVIRONMENT", Value: name}},
			EnvFile:           ".env." + name,
			Ports:             []int{DefaultAppPort},
		}
	}
	return []domain.DeploymentProfile{
		base(ProfileDev, domain.BuildTargetDevelopment, DevImage),
		base(ProfileProd, domain.BuildTargetProduction, ProdImage),
	}
}

// DefaultSet returns the validated dev/prod set.
func DefaultSet(projectDir string) *Set {
	s, err := NewSet(Defaults(projectDir)...)
	if err != nil {
		// The built-in profiles are static; a failure here is a programming error.
		panic(err)
	}
	return s
}
