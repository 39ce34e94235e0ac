package runtime

// EntryPoint names one runtime-provided function the emitter calls into
// by symbol name (spec.md §4.3). The emitter inlines one piece of runtime
// behavior itself: LEN, lowered as a direct load of the descriptor's
// length field instead of a string_len call. Role groups the table
// into families (arithmetic/memory/control) the same way an IR dump
// sections "=== Functions ===", "=== Globals ===".
type EntryPoint struct {
	Symbol string
	Role   string
}

// Entries is the ABI surface internal/emit calls into; the IL cmd/fbc
// writes refers to these symbols, and linking it against a runtime library
// that exports them happens outside this build (cmd/fbc only writes IL).
// string_len, array_bounds_check, array_erase, basic_global_cleanup and
// basic_runtime_error have no caller in internal/emit; they are listed
// because spec.md §3's runtime contract names them.
var Entries = []EntryPoint{
	{"string_new_utf8", "strings"},
	{"string_len", "strings"},
	{"string_asc", "strings"},
	{"string_chr", "strings"},
	{"string_retain", "strings"},
	{"string_release", "strings"},
	{"string_promote_utf32", "strings"},
	{"string_bounds_check", "strings"},

	{"array_new", "arrays"},
	{"array_redim_preserve", "arrays"},
	{"array_bounds_check", "arrays"},
	{"array_erase", "arrays"},

	{"basic_global_init", "globals"},
	{"basic_global_cleanup", "globals"},

	{"basic_data_read", "data"},
	{"basic_data_restore", "data"},

	{"basic_gosub_push", "control"},
	{"basic_gosub_pop", "control"},
	{"basic_for_continue", "control"},

	{"basic_print", "io"},
	{"basic_print_tab", "io"},
	{"basic_print_newline", "io"},
	{"basic_input_w", "io"},
	{"basic_input_l", "io"},
	{"basic_input_s", "io"},
	{"basic_input_d", "io"},

	{"basic_runtime_error", "diagnostics"},
}
