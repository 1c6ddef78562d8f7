/*
Package compiler drives compilation.

Process of compilation

Program Text ->
	parse ->
Abstract Syntax Tree (ast) ->
	check ->
Checked Tree (ast + front.Info) ->
	back ->
x86-64 Assembly Text (AT&T syntax)

Checked Tree ->
	ssagen ->
SSA Module (ir) ->
	print ->
LLVM Text

Assembly or LLVM text is linked with the C runtime (RuntimeSource),
which calls XinitGlobals and then Xmain.
*/
package compiler
