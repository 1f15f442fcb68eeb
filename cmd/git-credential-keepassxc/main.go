// Package main implements the git-credential-keepassxc helper.
package main

func main() {
	Execute()
}
