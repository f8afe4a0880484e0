package domain

// ScenarioDraft is the output of scenario generation before scenes are
// persisted: a title, a shared style descriptor threaded through every
// subsequent prompt, and one draft per unit.
type ScenarioDraft struct {
	Title   string
	Style   string
	Opening *SceneDraft
	Slides  []SceneDraft
}

// SceneDraft carries the narration and generation prompt for one unit.
type SceneDraft struct {
	Narration string
	Prompt    string
}
