package bucket

// Extension presets for bucket policies. All entries are lowercase and
// without the leading dot.
var (
	Text        = []string{"txt"}
	Documents   = []string{"rtf", "odf", "ods", "gnumeric", "abw", "doc", "docx", "xls", "xlsx"}
	Images      = []string{"jpg", "jpe", "jpeg", "png", "gif", "svg", "bmp", "webp"}
	Audio       = []string{"wav", "mp3", "aac", "ogg", "oga", "flac"}
	Data        = []string{"csv", "ini", "json", "plist", "xml", "yaml", "yml"}
	Scripts     = []string{"js", "php", "pl", "py", "rb", "sh"}
	Archives    = []string{"gz", "bz2", "zip", "tar", "tgz", "txz", "7z"}
	Source      = []string{"c", "cpp", "c++", "h", "hpp", "h++", "cxx", "hxx", "hdl"}
	Executables = []string{"so", "exe", "dll"}
)

// Defaults is the extension set used by buckets that configure none.
var Defaults = Concat(Text, Documents, Images)

// All covers every preset.
var All = Concat(Text, Documents, Images, Audio, Data, Scripts, Archives, Source, Executables)

// Concat joins preset lists into a single slice.
func Concat(presets ...[]string) []string {
	var out []string
	for _, p := range presets {
		out = append(out, p...)
	}
	return out
}

// AllExcept returns All minus the given extensions.
func AllExcept(exclude ...string) []string {
	skip := make(map[string]struct{}, len(exclude))
	for _, e := range exclude {
		skip[e] = struct{}{}
	}
	var out []string
	for _, e := range All {
		if _, ok := skip[e]; !ok {
			out = append(out, e)
		}
	}
	return out
}
