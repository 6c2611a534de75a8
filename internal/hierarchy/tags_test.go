package hierarchy

import "testing"

func TestLevelTotalAndStrictlyOrdered(t *testing.T) {
	tags := Tags()
	prev := 0
	for i := len(tags) - 1; i >= 0; i-- {
		level, ok := Level(tags[i])
		if !ok {
			t.Fatalf("tag %s has no level", tags[i])
		}
		if level <= prev {
			t.Fatalf("tag %s level %d not strictly above %d", tags[i], level, prev)
		}
		prev = level
	}
}

func TestLevelDeterministic(t *testing.T) {
	for _, tag := range Tags() {
		first, _ := Level(tag)
		second, _ := Level(tag)
		if first != second {
			t.Fatalf("level for %s not deterministic: %d vs %d", tag, first, second)
		}
	}
}

func TestLevelUnknownTag(t *testing.T) {
	if _, ok := Level(RoleTag("root")); ok {
		t.Fatal("expected unknown tag to be rejected")
	}
}

func TestParseTag(t *testing.T) {
	tag, err := ParseTag("manager")
	if err != nil {
		t.Fatalf("parse manager: %v", err)
	}
	if tag != TagManager {
		t.Fatalf("expected manager, got %s", tag)
	}
	if _, err := ParseTag("superuser"); err == nil {
		t.Fatal("expected error for unknown tag")
	}
}

func TestDisplayNameCoversAllTags(t *testing.T) {
	for _, tag := range Tags() {
		if DisplayName(tag) == string(tag) {
			t.Fatalf("display name for %s falls through to raw tag", tag)
		}
	}
}
