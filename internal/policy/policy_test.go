package policy

import (
	"testing"
)

func mustMinutes(t *testing.T, s string) int {
	t.Helper()
	w := WindowRule{Start: s, End: s}
	win, err := w.window()
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return win.Start
}

func TestWindowCrossingMidnight(t *testing.T) {
	windows := []Window{{Start: 18 * 60, End: 60}}

	tests := []struct {
		time string
		want bool
	}{
		{"23:30", true},
		{"00:15", true},
		{"18:00", true},
		{"01:00", true},
		{"01:01", false},
		{"12:00", false},
		{"17:59:00", false},
	}
	for _, tt := range tests {
		got, err := IsWithin(tt.time, windows)
		if err != nil {
			t.Fatalf("IsWithin(%q) error: %v", tt.time, err)
		}
		if got != tt.want {
			t.Errorf("IsWithin(%q) = %v, want %v", tt.time, got, tt.want)
		}
	}
}

func TestEmptyWindowsMeansClosed(t *testing.T) {
	if IsWithinWindows(mustMinutes(t, "20:00"), nil) {
		t.Error("empty window list should read as closed all day")
	}
}

func TestJustinoWindowsFor(t *testing.T) {
	reg := NewBuiltinRegistry()
	p, ok := reg.Profile(KeyJustino)
	if !ok {
		t.Fatal("justino profile missing")
	}

	tests := []struct {
		name  string
		date  string
		count int
		first string
	}{
		{"tuesday", "2025-09-09", 1, "18:00-01:00"},
		{"friday", "2025-09-12", 1, "18:00-03:30"},
		{"saturday", "2025-09-13", 1, "18:00-03:30"},
		{"sunday", "2025-09-14", 1, "12:00-21:00"},
		{"monday closed", "2025-09-08", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			windows, err := p.WindowsFor(tt.date, "")
			if err != nil {
				t.Fatalf("WindowsFor() error: %v", err)
			}
			if len(windows) != tt.count {
				t.Fatalf("WindowsFor() returned %d windows, want %d", len(windows), tt.count)
			}
			if tt.count > 0 && windows[0].String() != tt.first {
				t.Errorf("window = %s, want %s", windows[0], tt.first)
			}
		})
	}

	allowed, err := p.Allows("2025-09-08", "20:00", "")
	if err != nil {
		t.Fatalf("Allows() error: %v", err)
	}
	if allowed {
		t.Error("monday should be closed")
	}
}

func TestHighlineSaturdayFamilies(t *testing.T) {
	p, _ := NewBuiltinRegistry().Profile(KeyHighline)

	rooftop, err := p.WindowsFor("2025-09-13", "rooftop")
	if err != nil {
		t.Fatal(err)
	}
	if len(rooftop) != 1 || rooftop[0].String() != "14:00-17:00" {
		t.Errorf("rooftop windows = %v", rooftop)
	}

	deck, _ := p.WindowsFor("2025-09-13", p.FamilyOf("deck"))
	if len(deck) != 1 || deck[0].String() != "14:00-20:00" {
		t.Errorf("deck windows = %v", deck)
	}

	ok, _ := p.Allows("2025-09-13", "18:30", "rooftop")
	if ok {
		t.Error("18:30 should be outside the rooftop window")
	}
	ok, _ = p.Allows("2025-09-13", "18:30", "bar")
	if !ok {
		t.Error("18:30 should be inside the bar window")
	}

	all, _ := p.WindowsFor("2025-09-13", "")
	if len(all) != 2 {
		t.Errorf("without family expected both windows, got %d", len(all))
	}
	thursday, _ := p.WindowsFor("2025-09-11", "")
	if len(thursday) != 0 {
		t.Errorf("thursday should be closed, got %v", thursday)
	}
}

func TestUnrestrictedProfile(t *testing.T) {
	p := NewBuiltinRegistry().ForEstablishment(999)
	if p.Key != KeyDefault {
		t.Fatalf("unknown establishment resolved to %q", p.Key)
	}
	ok, err := p.Allows("2025-09-08", "04:00", "")
	if err != nil || !ok {
		t.Errorf("default profile should allow any time, got %v, %v", ok, err)
	}
}

func TestSubAreaReverseLookup(t *testing.T) {
	p, _ := NewBuiltinRegistry().Profile(KeyJustino)

	tests := []struct {
		tables []string
		want   string
	}{
		{[]string{"206"}, "Lounge Palco"},
		{[]string{"204", "208"}, "Lounge Palco"},
		{[]string{"999", "208"}, "Lounge Bar"},
	}
	for _, tt := range tests {
		s, ok := p.SubAreaForTables(tt.tables)
		if !ok {
			t.Fatalf("SubAreaForTables(%v) found nothing", tt.tables)
		}
		if s.Label != tt.want {
			t.Errorf("SubAreaForTables(%v) = %q, want %q", tt.tables, s.Label, tt.want)
		}
	}
	if _, ok := p.SubAreaForTables([]string{"999"}); ok {
		t.Error("unknown table should not resolve")
	}
}

func TestDisplayLabelGenericFallback(t *testing.T) {
	p, _ := NewBuiltinRegistry().Profile(KeyJustino)

	if got := p.DisplayLabel(3, "Lounges", []string{"206"}); got != "Lounge Palco" {
		t.Errorf("table-derived label = %q", got)
	}
	if got := p.DisplayLabel(1, "Área Coberta", nil); got != "Área Coberta (Salão)" {
		t.Errorf("generic area 1 label = %q", got)
	}
	if got := p.DisplayLabel(2, "Área Coberta", []string{"999"}); got != "Área Descoberta (Jardim)" {
		t.Errorf("generic area 2 label = %q", got)
	}
	if got := p.DisplayLabel(7, "Terraço", nil); got != "Terraço" {
		t.Errorf("specific area label = %q", got)
	}
}

func TestTurns(t *testing.T) {
	p, _ := NewBuiltinRegistry().Profile(KeyPracinha)
	if !p.HasTurns() {
		t.Fatal("pracinha should use turns")
	}
	if !p.SameTurn(mustMinutes(t, "18:00"), mustMinutes(t, "19:45")) {
		t.Error("18:00 and 19:45 should share the first turn")
	}
	if p.SameTurn(mustMinutes(t, "19:30"), mustMinutes(t, "20:00")) {
		t.Error("20:00 starts the second turn")
	}
}

func TestFullDayBlock(t *testing.T) {
	reg := NewBuiltinRegistry()
	for _, key := range []string{KeyJustino, KeyPracinha} {
		p, _ := reg.Profile(key)
		if !p.Blocked("2025-09-13", "15:00", 1) {
			t.Errorf("%s: saturday 15:00 should be blocked", key)
		}
		if !p.Blocked("2025-09-13", "20:59:00", 3) {
			t.Errorf("%s: saturday 20:59 should be blocked", key)
		}
		if p.Blocked("2025-09-13", "21:00", 1) {
			t.Errorf("%s: saturday 21:00 is outside the block", key)
		}
		if p.Blocked("2025-09-12", "16:00", 1) {
			t.Errorf("%s: friday is never blocked", key)
		}
		if p.Blocked("2025-09-13", "", 1) {
			t.Errorf("%s: a block needs a time", key)
		}
	}
	p, _ := reg.Profile(KeyHighline)
	if p.Blocked("2025-09-13", "16:00", 20) {
		t.Error("highline has no early-waitlist block")
	}
}

func TestWholeDayBlockCoversLastMinute(t *testing.T) {
	reg, err := NewRegistry(Profile{Key: "closed-sunday", Blocks: []BlockRule{{Days: []string{"sun"}, Start: "00:00", End: "24:00"}}})
	if err != nil {
		t.Fatal(err)
	}
	p, _ := reg.Profile("closed-sunday")
	for _, at := range []string{"00:00", "12:00", "23:59", "23:59:59"} {
		if !p.Blocked("2025-09-14", at, 1) {
			t.Errorf("sunday %s should be blocked", at)
		}
	}
	if p.Blocked("2025-09-15", "00:00", 1) {
		t.Error("monday is outside the block")
	}

	if _, err := NewRegistry(Profile{Key: "bad", Blocks: []BlockRule{{Days: []string{"sun"}, Start: "21:00", End: "15:00"}}}); err == nil {
		t.Error("block ending before it starts should be rejected")
	}
	if _, err := NewRegistry(Profile{Key: "bad", Blocks: []BlockRule{{Days: []string{"sun"}, Start: "24:00", End: "24:00"}}}); err == nil {
		t.Error("24:00 is only valid as an end")
	}
}

func TestRegistryApplyFile(t *testing.T) {
	doc := []byte(`
profiles:
  - key: justino
    name: Seu Justino
    overlap_minutes: 150
    promotion_window_minutes: 45
    windows:
      - days: [tue]
        start: "19:00"
        end: "23:00"
  - key: terraco
    name: Terraço
    confirmed_lock_areas: [40]
establishments:
  12: justino
  40: terraco
`)
	f, err := ParseFile(doc)
	if err != nil {
		t.Fatalf("ParseFile() error: %v", err)
	}
	reg := NewBuiltinRegistry()
	if err := reg.Apply(f); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	p := reg.ForEstablishment(12)
	if p.OverlapWindow() != 150 || p.PromotionWindow() != 45 {
		t.Errorf("tunables not applied: overlap=%d promotion=%d", p.OverlapWindow(), p.PromotionWindow())
	}
	if ok, _ := p.Allows("2025-09-09", "18:30", ""); ok {
		t.Error("overridden tuesday window should start at 19:00")
	}
	if !reg.ForEstablishment(40).ConfirmedLock(40) {
		t.Error("terraco should lock area 40")
	}
	if p.LargePartySize != DefaultLargePartySize {
		t.Errorf("large party size default = %d", p.LargePartySize)
	}
}

func TestRegistryRejectsInvalid(t *testing.T) {
	reg := NewBuiltinRegistry()
	if err := reg.Put(Profile{Key: "bad", Windows: []WindowRule{{Days: []string{"someday"}, Start: "18:00", End: "20:00"}}}); err == nil {
		t.Error("unknown weekday should be rejected")
	}
	if err := reg.Put(Profile{Key: "bad", Windows: []WindowRule{{Days: []string{"mon"}, Start: "25:00", End: "20:00"}}}); err == nil {
		t.Error("invalid time should be rejected")
	}
	if err := reg.Bind(1, "missing"); err == nil {
		t.Error("binding to an unknown profile should fail")
	}
}
