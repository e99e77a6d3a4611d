package runtime

import (
	"context"
	"fmt"

	"github.com/compose-spec/compose-go/v2/cli"
	composetypes "github.com/compose-spec/compose-go/v2/types"
	"github.com/heimdalr/dag"
)

// loadComposeProject parses composeFiles relative to workingDir into
// a compose-go Project; this package is the only one in the module
// that imports compose-go.
func loadComposeProject(ctx context.Context, workingDir, projectName string, composeFiles []string) (*composetypes.Project, error) {
	opts, err := cli.NewProjectOptions(
		composeFiles,
		cli.WithWorkingDirectory(workingDir),
		cli.WithName(projectName),
		cli.WithDotEnv,
		cli.WithOsEnv,
		cli.WithResolvedPaths(true),
	)
	if err != nil {
		return nil, fmt.Errorf("runtime: compose project options: %w", err)
	}
	project, err := cli.ProjectFromOptions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("runtime: loading compose project: %w", err)
	}
	return project, nil
}

// serviceDAG orders a compose project's services by depends_on, so
// ComposeUp brings dependencies up before dependents and ComposeDown
// tears dependents down first.
func serviceDAG(project *composetypes.Project) (*dag.DAG, error) {
	d := dag.NewDAG()
	for name := range project.Services {
		svc := project.Services[name]
		if err := d.AddVertexByID(name, &svc); err != nil {
			return nil, err
		}
	}
	for name, svc := range project.Services {
		for dep := range svc.DependsOn {
			if err := d.AddEdge(dep, name); err != nil {
				return nil, fmt.Errorf("runtime: compose dependency %s -> %s: %w", dep, name, err)
			}
		}
	}
	return d, nil
}

func composeContainerName(projectName, serviceName string) string {
	return fmt.Sprintf("%s-%s-1", projectName, serviceName)
}

// ComposeUp brings up the named services (all services when services
// is empty) of a compose project in dependency order, creating one
// container per service the way `docker compose up` would.
func (m *MobyRuntime) ComposeUp(ctx context.Context, projectName string, composeFiles []string, services []string) error {
	project, err := loadComposeProject(ctx, ".", projectName, composeFiles)
	if err != nil {
		return err
	}

	d, err := serviceDAG(project)
	if err != nil {
		return err
	}

	wanted := map[string]bool{}
	for _, s := range services {
		wanted[s] = true
	}

	order, err := topoOrder(d)
	if err != nil {
		return err
	}

	for _, name := range order {
		if len(wanted) > 0 && !wanted[name] {
			continue
		}
		svc := project.Services[name]

		var env []string
		for k, v := range svc.Environment {
			if v != nil {
				env = append(env, fmt.Sprintf("%s=%s", k, *v))
			}
		}

		spec := CreateSpec{
			Image: svc.Image,
			Name:  composeContainerName(projectName, name),
			Env:   env,
			Labels: map[string]string{
				"com.docker.compose.project": projectName,
				"com.docker.compose.service": name,
			},
			WorkingDir: svc.WorkingDir,
		}
		for _, m := range svc.Volumes {
			spec.Mounts = append(spec.Mounts, MountSpec{
				Type:     string(m.Type),
				Source:   m.Source,
				Target:   m.Target,
				ReadOnly: m.ReadOnly,
			})
		}

		id, err := m.CreateContainer(ctx, spec)
		if err != nil {
			return fmt.Errorf("runtime: compose up creating service %s: %w", name, err)
		}
		if err := m.StartContainer(ctx, id); err != nil {
			return fmt.Errorf("runtime: compose up starting service %s: %w", name, err)
		}
	}
	return nil
}

// ComposeDown stops and removes every container belonging to
// projectName, in reverse dependency order.
func (m *MobyRuntime) ComposeDown(ctx context.Context, projectName string, composeFiles []string) error {
	project, err := loadComposeProject(ctx, ".", projectName, composeFiles)
	if err != nil {
		return err
	}
	d, err := serviceDAG(project)
	if err != nil {
		return err
	}
	order, err := topoOrder(d)
	if err != nil {
		return err
	}

	containers, err := m.ListContainers(ctx, map[string]string{"com.docker.compose.project": projectName})
	if err != nil {
		return err
	}
	byService := map[string]string{}
	for _, c := range containers {
		byService[c.Labels["com.docker.compose.service"]] = c.ID
	}

	for i := len(order) - 1; i >= 0; i-- {
		id, ok := byService[order[i]]
		if !ok {
			continue
		}
		if err := m.StopContainer(ctx, id); err != nil {
			return err
		}
		if err := m.RemoveContainer(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// topoOrder flattens a heimdalr/dag DAG's descendants-first ordering
// into a single dependency-respecting slice via Kahn's algorithm,
// since the dag package exposes edges/vertices but not a ready-made
// flat ordering.
func topoOrder(d *dag.DAG) ([]string, error) {
	inDegree := map[string]int{}
	ids := d.GetVertices()
	for id := range ids {
		inDegree[id] = 0
	}
	for id := range ids {
		children, err := d.GetChildren(id)
		if err != nil {
			return nil, err
		}
		for child := range children {
			inDegree[child]++
		}
	}

	var queue, order []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		children, err := d.GetChildren(id)
		if err != nil {
			return nil, err
		}
		for child := range children {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}
	if len(order) != len(ids) {
		return nil, fmt.Errorf("runtime: compose service dependency cycle detected")
	}
	return order, nil
}
