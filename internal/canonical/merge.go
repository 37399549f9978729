package canonical

// Merge folds a freshly extracted partial record into an accumulated one.
//
// Policy: an incoming field wins only when it carries genuine information,
// meaning it is non-empty and not the field's default sentinel. The default
// triage tier (Verde) is treated as "nothing new", not as an explicit
// low-severity assertion. The merge is therefore monotonic: once a field
// holds a genuine value, only another genuine value can replace it.
func Merge(existing, incoming Record) Record {
	merged := existing
	dst := merged.fieldRefs()
	src := incoming.fieldRefs()
	for i := range src {
		if *src[i] != "" {
			*dst[i] = *src[i]
		}
	}
	if incoming.Triage != "" && incoming.Triage != TriageGreen {
		merged.Triage = incoming.Triage
	}
	if merged.Triage == "" {
		merged.Triage = TriageGreen
	}
	return merged
}
