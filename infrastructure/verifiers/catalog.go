package verifiers

import "github.com/ahrav/go-reward/internal/ports"

// Factories returns the static verifier table keyed by lowercase kind tag.
// Every call returns a fresh map that the caller may extend.
func Factories() map[string]ports.VerifierFactory {
	table := map[string]ports.VerifierFactory{
		KindOCR:          NewOCRVerifierFromConfig,
		KindGeneral:      NewGeneralVerifierFromConfig,
		KindGeoQuest:     NewGeoQuestVerifierFromConfig,
		KindLanguageMix:  NewLanguageMixVerifierFromConfig,
		KindConsistency:  NewConsistencyVerifierFromConfig,
		KindFileBased:    PluginFactory(KindFileBased, ""),
		KindAndroidWorld: PluginFactory(KindAndroidWorld, PluginAndroidWorld),
		KindOSWorld:      PluginFactory(KindOSWorld, PluginOSWorld),
		KindWebVoyager:   PluginFactory(KindWebVoyager, PluginWebVoyager),
	}
	for _, kind := range RuleKinds {
		table[kind] = RuleFactory(kind)
	}
	return table
}
