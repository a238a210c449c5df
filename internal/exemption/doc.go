// Package exemption loads and queries the OOM exemption list.
//
// The list is a line-oriented text file, one entry per line:
//
//	# comment
//	sshd        substring entry: "sh" and "ssh" are exempt
//	!postgres   exact entry: only "postgres" is exempt
//
// Substring entries are the haystack and the queried name is the needle, so a
// short name matches inside a longer configured entry and never the reverse.
//
// The file is re-read on every query. Lines that do not fit LineBufferSize
// are discarded whole, as is an unterminated last line.
//
// A discarded over-long line takes with it only the bytes up to its own
// terminator: the spill-over a fixed-size line reader would see as the
// "next line" is dropped, and the following physical line is parsed as usual.
// A stricter reading that also drops that following line is not applied.
package exemption
