// Command revdb inspects and edits revdb databases from the command line.
package main

func main() {
	Execute()
}
