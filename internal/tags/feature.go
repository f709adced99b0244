package tags

import "github.com/mesh-intelligence/gherkinsync/pkg/types"

// FeatureRefs holds the plan and suite reference tags found on a feature.
type FeatureRefs struct {
	Plan       ReferenceTag
	PlanFound  bool
	Suite      ReferenceTag
	SuiteFound bool
}

// ResolveFeature finds the plan and suite reference tags on doc.
func ResolveFeature(doc types.FeatureDocument, prefixes types.TagPrefixes) (FeatureRefs, error) {
	var refs FeatureRefs
	var err error

	refs.Plan, refs.PlanFound, err = Find(prefixes.TestPlan, doc.Tags)
	if err != nil {
		return FeatureRefs{}, err
	}
	refs.Suite, refs.SuiteFound, err = Find(prefixes.TestSuite, doc.Tags)
	if err != nil {
		return FeatureRefs{}, err
	}
	return refs, nil
}

// ApplyTo overrides the plan and suite identifiers in opts with the ones
// pinned in the document. Configured values are kept when the document
// has no tag or the tag is empty.
func (r FeatureRefs) ApplyTo(opts types.SyncOptions) types.SyncOptions {
	if r.PlanFound && len(r.Plan.IDs) > 0 {
		opts.TestPlanID = r.Plan.IDs[0]
	}
	if r.SuiteFound && len(r.Suite.IDs) > 0 {
		opts.TestSuiteID = r.Suite.IDs[0]
	}
	return opts
}
