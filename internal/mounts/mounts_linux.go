package mounts

const defaultMountsFile = "/proc/self/mounts"
