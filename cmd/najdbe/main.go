// Command najdbe serves the campus lost & found catalog.
package main

func main() {
	Execute()
}
