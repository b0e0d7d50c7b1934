package popup

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/fiberplan/internal/config"
	"github.com/sells-group/fiberplan/internal/kml"
	"github.com/sells-group/fiberplan/internal/layer"
	"github.com/sells-group/fiberplan/internal/project"
	"github.com/sells-group/fiberplan/internal/spatial"
)

// MissingLayersError reports required roles the document does not provide.
type MissingLayersError struct {
	Roles []layer.Role
}

func (e *MissingLayersError) Error() string {
	names := make([]string, len(e.Roles))
	for i, r := range e.Roles {
		names[i] = string(r)
	}
	return "popup: missing required layers: " + strings.Join(names, ", ")
}

// ProjectionError reports a required layer whose features cannot be
// projected into the target system.
type ProjectionError struct {
	Role layer.Role
	Err  error
}

func (e *ProjectionError) Error() string {
	return "popup: project " + string(e.Role) + " layer: " + e.Err.Error()
}

func (e *ProjectionError) Unwrap() error { return e.Err }

// Options configures ProcessDesign. The zero value processes with the
// default rules, EPSG:32748, and StandardDefaults.
type Options struct {
	Loader     layer.LoaderConfig
	TargetEPSG int
	Strict     bool // also require FAT and POLE
	Defaults   Defaults
}

// OptionsFromConfig builds Options from application config, loading the
// rules file when one is configured.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	opts := Options{
		Loader: layer.LoaderConfig{
			Reader: kml.ReaderConfig{MaxEntryBytes: cfg.KML.MaxEntryBytes},
		},
		TargetEPSG: cfg.Process.TargetEPSG,
		Strict:     cfg.Process.Strict,
		Defaults: Defaults{
			DeploymentType:     cfg.Defaults.DeploymentType,
			NeedSurvey:         cfg.Defaults.NeedSurvey,
			PoleProvider:       cfg.Defaults.PoleProvider,
			PoleType:           cfg.Defaults.PoleType,
			BizPassBusiness:    cfg.Defaults.BizPassBusiness,
			BizPassResidential: cfg.Defaults.BizPassResidential,
			ClusterPlaceholder: cfg.Defaults.ClusterPlaceholder,
		},
	}
	if cfg.Process.RulesFile != "" {
		rules, err := layer.LoadRules(cfg.Process.RulesFile)
		if err != nil {
			return Options{}, eris.Wrap(err, "popup: load rules")
		}
		opts.Loader.Rules = rules
	}
	return opts, nil
}

// Required returns the roles a document must provide.
func (o Options) Required() []layer.Role {
	if o.Strict {
		return []layer.Role{layer.RoleHomepass, layer.RoleFAT, layer.RolePole}
	}
	return []layer.Role{layer.RoleHomepass}
}

func (o Options) system() (project.System, error) {
	if o.TargetEPSG == 0 {
		return project.Default(), nil
	}
	return project.UTM(o.TargetEPSG)
}

// defaults fills every empty field of o.Defaults from StandardDefaults.
func (o Options) defaults() Defaults {
	d := o.Defaults
	std := StandardDefaults()
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&d.DeploymentType, std.DeploymentType},
		{&d.NeedSurvey, std.NeedSurvey},
		{&d.PoleProvider, std.PoleProvider},
		{&d.PoleType, std.PoleType},
		{&d.BizPassBusiness, std.BizPassBusiness},
		{&d.BizPassResidential, std.BizPassResidential},
		{&d.ClusterPlaceholder, std.ClusterPlaceholder},
	} {
		if *f.dst == "" {
			*f.dst = f.src
		}
	}
	return d
}

// Result is the output of one processed document.
type Result struct {
	Document string
	Records  []Record
	Folders  []layer.FolderReport
	Counts   map[layer.Role]int // features per classified role
	Skipped  []layer.Role       // optional layers dropped because they could not be projected
}

// ProcessDesign loads the KML/KMZ document at path and returns one record
// per homepass. A document that cannot be read yields *kml.FormatError; one
// lacking required roles yields *MissingLayersError.
func ProcessDesign(ctx context.Context, path string, opts Options) (*Result, error) {
	set, err := layer.Load(ctx, path, opts.Loader)
	if err != nil {
		return nil, err
	}
	return Process(ctx, set, opts)
}

// Process enriches the homepass layer of an already classified set. An
// optional layer that cannot be projected is skipped with a warning; a
// required one yields *ProjectionError.
func Process(ctx context.Context, set *layer.Set, opts Options) (*Result, error) {
	start := time.Now()

	if missing := set.Missing(opts.Required()...); len(missing) > 0 {
		return nil, &MissingLayersError{Roles: missing}
	}

	sys, err := opts.system()
	if err != nil {
		return nil, err
	}

	required := make(map[layer.Role]bool)
	for _, r := range opts.Required() {
		required[r] = true
	}

	projected := make(map[layer.Role]*project.Layer, len(set.Layers))
	counts := make(map[layer.Role]int, len(set.Layers))
	var skipped []layer.Role
	for _, role := range layer.Roles {
		l, ok := set.Layer(role)
		if !ok {
			continue
		}
		p, err := project.Project(l, sys)
		if err != nil {
			if required[role] {
				return nil, &ProjectionError{Role: role, Err: err}
			}
			zap.L().Warn("popup: skipping layer that cannot be projected",
				zap.String("role", string(role)),
				zap.Stringer("system", sys),
				zap.Error(err),
			)
			skipped = append(skipped, role)
			continue
		}
		projected[role] = p
		counts[role] = l.Len()
	}

	fats := spatial.NewIndex(projected[layer.RoleFAT])
	poles := spatial.NewIndex(projected[layer.RolePole])
	fdts := spatial.NewIndex(projected[layer.RoleFDT])
	areas := spatial.NewAreas(projected[layer.RoleArea])
	_, hasArea := projected[layer.RoleArea]

	d := opts.defaults()
	homes := projected[layer.RoleHomepass]
	records := make([]Record, 0, homes.Len())

	for i, hp := range homes.Features {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "popup: processing cancelled")
		}

		in := Input{
			Homepass:      hp.Source,
			Position:      i + 1,
			HasAreaLayer:  hasArea,
			BusinessSplit: set.BusinessSplit,
		}
		if c, ok := hp.Location(); ok {
			in.FAT = nearest(fats, c)
			in.Pole = nearest(poles, c)
			in.FDT = nearest(fdts, c)
			if a, ok := areas.Containing(c); ok {
				in.Area = a.Source
			}
		} else {
			zap.L().Warn("popup: homepass has no usable coordinate",
				zap.Int("position", i+1),
				zap.String("name", hp.Source.Name),
			)
		}
		records = append(records, Assemble(in, d))
	}

	zap.L().Info("popup: document processed",
		zap.String("document", set.Document),
		zap.Int("records", len(records)),
		zap.Int("fat", counts[layer.RoleFAT]),
		zap.Int("pole", counts[layer.RolePole]),
		zap.Int("fdt", counts[layer.RoleFDT]),
		zap.Int("area", counts[layer.RoleArea]),
		zap.Stringer("system", sys),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &Result{
		Document: set.Document,
		Records:  records,
		Folders:  set.Folders,
		Counts:   counts,
		Skipped:  skipped,
	}, nil
}

func nearest(idx *spatial.Index, c geom.Coord) *layer.Feature {
	m, ok := idx.Nearest(c)
	if !ok {
		return nil
	}
	return m.Feature.Source
}
