package template

import "testing"

func TestInterpolate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		vars map[string]string
		want string
	}{
		{
			name: "single placeholder",
			in:   "Summarize: {{text}}",
			vars: map[string]string{"text": "the article"},
			want: "Summarize: the article",
		},
		{
			name: "repeated placeholder",
			in:   "{{a}} and {{a}}",
			vars: map[string]string{"a": "x"},
			want: "x and x",
		},
		{
			name: "multiple columns",
			in:   "{{q}} -> {{expected}}",
			vars: map[string]string{"q": "2+2", "expected": "4"},
			want: "2+2 -> 4",
		},
		{
			name: "missing key stays verbatim",
			in:   "hello {{name}}",
			vars: map[string]string{"other": "x"},
			want: "hello {{name}}",
		},
		{
			name: "empty value substitutes empty",
			in:   "[{{v}}]",
			vars: map[string]string{"v": ""},
			want: "[]",
		},
		{
			name: "nil vars",
			in:   "{{a}}",
			vars: nil,
			want: "{{a}}",
		},
		{
			name: "non-word keys are not placeholders",
			in:   "{{a b}} {{}}",
			vars: map[string]string{"a b": "x"},
			want: "{{a b}} {{}}",
		},
		{
			name: "no placeholders",
			in:   "plain text",
			vars: map[string]string{"text": "x"},
			want: "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Interpolate(tt.in, tt.vars); got != tt.want {
				t.Errorf("Interpolate(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
