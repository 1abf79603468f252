package extract

import (
	"reflect"
	"testing"
)

func TestCollapseSpace(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  hello   world  ", "hello world"},
		{"line\n\tbreaks", "line breaks"},
		{"", ""},
		{"single", "single"},
	}
	for _, c := range cases {
		if got := CollapseSpace(c.in); got != c.want {
			t.Errorf("CollapseSpace(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"[기초] 드로잉 수업", "기초 드로잉 수업"},
		{"Drawing: the basics!", "Drawing the basics"},
		{"괄호 (연습) <심화>", "괄호 (연습) <심화>"},
		{"slash/and\\dots...", "slashanddots"},
	}
	for _, c := range cases {
		if got := SanitizeName(c.in); got != c.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestStripTitleSuffix(t *testing.T) {
	cases := []struct{ in, want string }{
		{"드로잉 기초 12:34", "드로잉 기초"},
		{"연습문제 3", "연습문제"},
		{"수업 소개미션", "수업 소개"},
		{"자료 모음첨부파일", "자료 모음"},
		{"과제미션첨부파일", "과제"},
		{"plain title", "plain title"},
	}
	for _, c := range cases {
		if got := StripTitleSuffix(c.in); got != c.want {
			t.Errorf("StripTitleSuffix(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestAttachSerial(t *testing.T) {
	cases := []struct {
		in   []string
		want []string
	}{
		{
			[]string{"a", "b", "c"},
			[]string{"a", "b", "c"},
		},
		{
			[]string{"연습문제", "연습문제", "연습문제"},
			[]string{"연습문제 1", "연습문제 2", "연습문제 3"},
		},
		{
			[]string{"intro", "quiz", "quiz", "outro"},
			[]string{"intro", "quiz 1", "quiz 2", "outro"},
		},
		{
			[]string{"a", "a", "b", "a"},
			[]string{"a 1", "a 2", "b", "a"},
		},
	}
	for _, c := range cases {
		if got := AttachSerial(c.in); !reflect.DeepEqual(got, c.want) {
			t.Errorf("AttachSerial(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
