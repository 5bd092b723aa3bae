package dockerengine

// LabelOwnership is set for collector containers created by registry-gc.
const LabelOwnership = "registry.gc.ownership"

// collectorLabels returns labels for the one-shot collector container,
// so leftovers can be told apart from containers created by other tools.
func collectorLabels(volumesFrom string) map[string]string {
	return map[string]string{
		LabelOwnership:       "1",
		"registry.gc.target": volumesFrom,
	}
}
