package layer

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fiberplan/internal/kml"
)

// Status describes how a folder was handled during classification.
type Status string

// Folder statuses.
const (
	StatusClassified   Status = "classified"
	StatusAmbiguous    Status = "ambiguous"    // several roles matched by name; precedence decided
	StatusUnclassified Status = "unclassified" // no rule matched; folder ignored
	StatusFailed       Status = "failed"       // folder could not be parsed; folder skipped
)

// Via records which rule stage classified a folder.
type Via string

// Classification stages.
const (
	ViaName    Via = "name"
	ViaContent Via = "content"
)

// FolderReport is the classification outcome for one folder.
type FolderReport struct {
	Name       string
	Path       string
	Status     Status
	Role       Role
	Via        Via
	Matched    []Role // every role matched by name
	Business   bool
	Features   int
	NoGeometry int // placemarks dropped for lacking geometry
	Err        error
}

// Set is the result of loading one document: at most one Layer per role plus
// a report for every folder.
type Set struct {
	Document      string
	Layers        map[Role]*Layer
	Folders       []FolderReport
	BusinessSplit bool // a HOME-BIZ folder was present
}

// Layer returns the layer for role, if one was classified.
func (s *Set) Layer(role Role) (*Layer, bool) {
	l, ok := s.Layers[role]
	return l, ok
}

// Missing returns the roles in required that have no layer, in the order given.
func (s *Set) Missing(required ...Role) []Role {
	var missing []Role
	for _, r := range required {
		if _, ok := s.Layers[r]; !ok {
			missing = append(missing, r)
		}
	}
	return missing
}

// LoaderConfig configures Load. A zero Rules value selects DefaultRules.
type LoaderConfig struct {
	Reader kml.ReaderConfig
	Rules  Rules
}

// Load opens a KML or KMZ file and classifies its folders.
// Unreadable documents return a *kml.FormatError unchanged.
func Load(ctx context.Context, path string, cfg LoaderConfig) (*Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "layer: load cancelled")
	}

	doc, err := kml.Open(path, cfg.Reader)
	if err != nil {
		return nil, err
	}

	rules := cfg.Rules
	if len(rules.Roles) == 0 {
		rules = DefaultRules()
	}

	set := Classify(doc, rules)

	zap.L().Debug("layer: document classified",
		zap.String("path", path),
		zap.Int("folders", len(set.Folders)),
		zap.Int("layers", len(set.Layers)),
	)
	return set, nil
}

// Classify assigns each folder of doc to a role. Folders sharing a role are
// concatenated in document order; homepass features are ordered residential
// first, business second.
func Classify(doc *kml.Document, rules Rules) *Set {
	set := &Set{
		Document: doc.Name,
		Layers:   make(map[Role]*Layer),
	}

	var residential, business []*Feature
	var homeFolders []string

	for _, folder := range doc.Folders {
		report := FolderReport{Name: folder.Name, Path: folder.Path}

		if folder.Err != nil {
			report.Status = StatusFailed
			report.Err = folder.Err
			set.Folders = append(set.Folders, report)
			zap.L().Warn("layer: skipping folder that failed to parse",
				zap.String("folder", folder.Path),
				zap.Error(folder.Err),
			)
			continue
		}

		features, dropped := toFeatures(folder)
		report.Features = len(features)
		report.NoGeometry = dropped

		role, via, matched := classifyFolder(folder, rules)
		report.Matched = matched
		if role == "" {
			report.Status = StatusUnclassified
			set.Folders = append(set.Folders, report)
			if len(folder.Placemarks) > 0 {
				zap.L().Info("layer: folder matched no role",
					zap.String("folder", folder.Path),
					zap.Int("placemarks", len(folder.Placemarks)),
				)
			}
			continue
		}

		report.Role = role
		report.Via = via
		report.Status = StatusClassified
		if len(matched) > 1 {
			report.Status = StatusAmbiguous
			zap.L().Warn("layer: folder name matches several roles",
				zap.String("folder", folder.Path),
				zap.Any("matched", matched),
				zap.String("chosen", string(role)),
			)
		}

		if role == RoleHomepass {
			homeFolders = append(homeFolders, folder.Name)
			if rules.IsBusiness(folder.Name) {
				report.Business = true
				set.BusinessSplit = true
				for _, f := range features {
					f.Business = true
				}
				business = append(business, features...)
			} else {
				residential = append(residential, features...)
			}
			set.Folders = append(set.Folders, report)
			continue
		}

		l := set.layerFor(role)
		l.Folders = append(l.Folders, folder.Name)
		l.Features = append(l.Features, features...)
		set.Folders = append(set.Folders, report)
	}

	if len(homeFolders) > 0 {
		l := set.layerFor(RoleHomepass)
		l.Folders = homeFolders
		l.Features = append(append(l.Features, residential...), business...)
	}

	for _, l := range set.Layers {
		for i, f := range l.Features {
			f.Index = i
		}
		l.EnsureSRID()
	}

	return set
}

func (s *Set) layerFor(role Role) *Layer {
	l, ok := s.Layers[role]
	if !ok {
		l = &Layer{Role: role}
		s.Layers[role] = l
	}
	return l
}

// classifyFolder applies the name rules, then the first-feature content rule.
func classifyFolder(folder kml.Folder, rules Rules) (Role, Via, []Role) {
	matched := rules.MatchName(folder.Name)
	if len(matched) > 0 {
		return matched[0], ViaName, matched
	}
	if len(folder.Placemarks) == 0 {
		return "", "", nil
	}
	if role, ok := rules.MatchContent(folder.Placemarks[0].Name); ok {
		return role, ViaContent, nil
	}
	return "", "", nil
}

func toFeatures(folder kml.Folder) ([]*Feature, int) {
	features := make([]*Feature, 0, len(folder.Placemarks))
	dropped := 0
	for _, pm := range folder.Placemarks {
		if pm.Geometry == nil {
			dropped++
			continue
		}
		f := &Feature{
			Name:        pm.Name,
			Description: pm.Description,
			Geometry:    pm.Geometry,
			Folder:      folder.Name,
		}
		for _, d := range pm.Data {
			f.Attributes = append(f.Attributes, Attribute{Name: d.Name, Value: d.Value})
		}
		features = append(features, f)
	}
	if dropped > 0 {
		zap.L().Debug("layer: dropped placemarks without geometry",
			zap.String("folder", folder.Path),
			zap.Int("dropped", dropped),
		)
	}
	return features, dropped
}
