package score

import "testing"

func testRegistry(t *testing.T) *Registry {
	t.Helper()

	r := NewRegistry()
	for _, meta := range []struct{ id, specialty string }{
		{"af_stroke", "cardiology"},
		{"curb65", "pulmonology"},
		{"stop_bang", "pulmonology"},
	} {
		def := afTestScore()
		def.ID = meta.id
		def.Specialty = meta.specialty
		r.Register(MustCompile(def))
	}
	return r
}

func TestRegistryGet(t *testing.T) {
	r := testRegistry(t)

	cs, ok := r.Get("curb65")
	if !ok {
		t.Fatal("expected curb65 to be registered")
	}
	if cs.Definition.ID != "curb65" {
		t.Errorf("unexpected definition: %s", cs.Definition.ID)
	}

	if _, ok := r.Get("nope"); ok {
		t.Error("expected lookup miss for unknown ID")
	}
}

func TestRegistryListSorted(t *testing.T) {
	r := testRegistry(t)

	defs := r.List()
	if len(defs) != 3 {
		t.Fatalf("expected 3 definitions, got %d", len(defs))
	}
	want := []string{"af_stroke", "curb65", "stop_bang"}
	for i, def := range defs {
		if def.ID != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], def.ID)
		}
	}
}

func TestRegistryBySpecialty(t *testing.T) {
	r := testRegistry(t)

	pulm := r.BySpecialty("pulmonology")
	if len(pulm) != 2 {
		t.Fatalf("expected 2 pulmonology scores, got %d", len(pulm))
	}

	specialties := r.Specialties()
	if len(specialties) != 2 || specialties[0] != "cardiology" || specialties[1] != "pulmonology" {
		t.Errorf("unexpected specialties: %v", specialties)
	}
}

func TestRegistryReplace(t *testing.T) {
	r := testRegistry(t)

	def := afTestScore()
	def.ID = "new_only"
	r.Replace([]*CompiledScore{MustCompile(def)})

	if r.Count() != 1 {
		t.Fatalf("expected 1 score after replace, got %d", r.Count())
	}
	if _, ok := r.Get("af_stroke"); ok {
		t.Error("old score should be gone after replace")
	}
	if _, ok := r.Get("new_only"); !ok {
		t.Error("new score should be present after replace")
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := testRegistry(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 100 {
			def := afTestScore()
			r.Register(MustCompile(def))
		}
	}()
	for range 100 {
		r.Get("af_stroke")
		r.List()
	}
	<-done
}
