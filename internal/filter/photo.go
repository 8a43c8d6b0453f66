package filter

// MinPhotoSize is the default size floor. Camera rolls are littered
// with thumbnails and preview fragments below this size.
const MinPhotoSize = 30 * 1024

// MediaExtensions is the stock allow list: common photo and video
// formats plus the raw formats of the major camera vendors.
var MediaExtensions = []string{
	"jpg", "jpeg", "png", "gif", "bmp", "tif", "tiff",
	"heic", "heif", "webp",
	"dng", "raw", "arw", "cr2", "cr3", "nef", "orf", "raf", "rw2",
	"mp4", "mov", "avi", "m4v", "3gp",
}

// JunkExtensions are sidecar and metadata files that ride along in
// photo folders but are never worth mirroring.
var JunkExtensions = []string{
	"tmp", "db", "ini", "aae", "json", "txt", "log",
}

// JunkNames are well-known junk basenames.
var JunkNames = []string{
	"thumbs.db", ".nomedia",
}

// JunkDirs are directory names pruned wholesale: NAS thumbnail caches
// and scratch space.
var JunkDirs = []string{
	"@eaDir", "tmp", "cache",
}
