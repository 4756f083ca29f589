package model

// DeploymentStateBuilding is the state of a just triggered deployment when the provider doesn't return one.
const DeploymentStateBuilding = "BUILDING"

// Deployment is a triggered deployment of a project.
type Deployment struct {
	ID    string
	URL   string
	State string
}
