package pipeline

// Addin contributes stages to a pipeline for one build system or
// cross-cutting concern.
//
// Load inspects the pipeline (build system, configuration, source tree)
// and attaches stages. An addin that does not apply returns an error
// built with builderr.NotSupported; the pipeline skips it quietly.
// Unload detaches whatever Load attached.
type Addin interface {
	Name() string
	Load(p *Pipeline) error
	Unload(p *Pipeline) error
}

// Tracker remembers the ids of attached stages so an addin can detach
// them all on unload.
type Tracker struct {
	ids []uint
}

// Attach attaches stage and records its id.
func (t *Tracker) Attach(p *Pipeline, phase Phase, priority int, stage Stage) (uint, error) {
	id, err := p.Attach(phase, priority, stage)
	if err != nil {
		return 0, err
	}
	t.ids = append(t.ids, id)
	return id, nil
}

// Track records an id obtained elsewhere.
func (t *Tracker) Track(id uint) { t.ids = append(t.ids, id) }

// IDs returns the tracked ids in attachment order.
func (t *Tracker) IDs() []uint { return append([]uint(nil), t.ids...) }

// DetachAll detaches every tracked stage and forgets them.
func (t *Tracker) DetachAll(p *Pipeline) error {
	for _, id := range t.ids {
		if err := p.Detach(id); err != nil {
			return err
		}
	}
	t.ids = nil
	return nil
}
