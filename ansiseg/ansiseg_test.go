package ansiseg

import "testing"

func TestSegmentPlainText(t *testing.T) {
	segs := Segment("hello world")
	if len(segs) != 1 || segs[0].Text != "hello world" {
		t.Fatalf("unexpected segments: %+v", segs)
	}
	if segs[0].Attributes != 0 || segs[0].HasColorIdx {
		t.Fatalf("plain text should carry no style: %+v", segs[0])
	}
}

func TestSegmentEmptyLine(t *testing.T) {
	segs := Segment("")
	if len(segs) != 0 {
		t.Fatalf("expected no segments for empty line, got %+v", segs)
	}
}

func TestSegmentStandardForeground(t *testing.T) {
	segs := Segment("\x1b[31mred\x1b[0m plain")
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d: %+v", len(segs), segs)
	}
	if segs[0].Text != "red" || !segs[0].HasColorIdx || segs[0].ColorIndex != 1 {
		t.Fatalf("unexpected first segment: %+v", segs[0])
	}
	if segs[1].Text != " plain" || segs[1].HasColorIdx {
		t.Fatalf("reset did not clear style: %+v", segs[1])
	}
}

func TestSegmentBrightBackground(t *testing.T) {
	segs := Segment("\x1b[102mbright-green-bg\x1b[49m")
	if len(segs) != 1 || segs[0].BgColorIndex != 10 || !segs[0].HasBgColorIdx {
		t.Fatalf("unexpected segments: %+v", segs)
	}
}

func TestSegmentTrueColor(t *testing.T) {
	segs := Segment("\x1b[38;2;18;52;86mcolored")
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %+v", segs)
	}
	if segs[0].Color != "#123456" {
		t.Fatalf("expected #123456, got %q", segs[0].Color)
	}
}

func TestSegmentAttributesCombine(t *testing.T) {
	segs := Segment("\x1b[1;4mbold-underline")
	if len(segs) != 1 {
		t.Fatalf("unexpected segments: %+v", segs)
	}
	want := AttrBold | AttrUnderline
	if segs[0].Attributes != want {
		t.Fatalf("attributes = %v, want %v", segs[0].Attributes, want)
	}
}

func TestSegmentInverseIsAttributeNotSwap(t *testing.T) {
	segs := Segment("\x1b[7minverse")
	if len(segs) != 1 || segs[0].Attributes != AttrInverse {
		t.Fatalf("expected inverse attribute bit, not a fg/bg swap: %+v", segs)
	}
}

func TestSegmentUnknownParamIgnored(t *testing.T) {
	segs := Segment("\x1b[58mtext")
	if len(segs) != 1 || segs[0].Text != "text" {
		t.Fatalf("unexpected segments for unknown SGR param: %+v", segs)
	}
	if segs[0].Attributes != 0 {
		t.Fatalf("unknown param should not set any attribute: %+v", segs[0])
	}
}

func TestSegmentMalformedEscapeTreatedLiterally(t *testing.T) {
	segs := Segment("\x1b[abctext")
	if len(segs) != 1 {
		t.Fatalf("expected malformed escape to fall back to literal text: %+v", segs)
	}
}
