package dispatch

import (
	"encoding/json"

	"github.com/nlsantos/devc/internal/config"
	"github.com/nlsantos/devc/internal/feature"
	"github.com/nlsantos/devc/internal/mount"
	"github.com/nlsantos/devc/internal/runtime"
)

// resolveMounts merges a config's declared mounts with every resolved
// feature's contributed mounts (features first, in install order,
// config last so it wins target collisions) and converts the result
// to the runtime-facing MountSpec shape.
func resolveMounts(cfg *config.DevContainerConfig, plan *feature.Plan) ([]runtime.MountSpec, []mount.Warning, error) {
	var configMounts []mount.ConfigMount
	for _, raw := range cfg.Mounts {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			configMounts = append(configMounts, mount.ConfigMount{String: s})
			continue
		}
		var obj mount.Object
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, nil, err
		}
		configMounts = append(configMounts, mount.ConfigMount{Object: &obj})
	}

	var featureMounts []mount.FeatureMounts
	if plan != nil {
		for _, f := range plan.Features {
			strs := make([]string, len(f.Mounts))
			for i, m := range f.Mounts {
				strs[i] = m.String()
			}
			featureMounts = append(featureMounts, mount.FeatureMounts{FeatureID: f.ID, Mounts: strs})
		}
	}

	result, err := mount.Merge(configMounts, featureMounts)
	if err != nil {
		return nil, nil, err
	}

	specs := make([]runtime.MountSpec, len(result.Mounts))
	for i, m := range result.Mounts {
		specs[i] = runtime.MountSpec{
			Type:        string(m.Type),
			Source:      m.Source,
			Target:      m.Target,
			ReadOnly:    m.Mode == mount.ModeReadOnly,
			Consistency: string(m.Consistency),
		}
	}
	return specs, result.Warnings, nil
}
