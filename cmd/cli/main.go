package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"soundmark/internal/audio"
	"soundmark/internal/model"
	"soundmark/internal/service"
	"soundmark/internal/storage"
	"soundmark/pkg/logger"
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	_ = godotenv.Load()
	log := logger.GetLogger()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "add":
		err = runAdd(args)
	case "match":
		err = runMatch(args)
	case "list":
		err = runList(args)
	case "delete":
		err = runDelete(args)
	case "scan":
		err = runScan(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s: %v", command, err)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `soundmark — acoustic fingerprinting catalog

Usage:
  soundmark add   <file.wav> -title T -artist A [-album L] [-year Y] [-genre G]
  soundmark match <file.wav>
  soundmark list
  soundmark delete -id N
  soundmark scan  <dir> [-artist A]

Common flags (every command):
  -db <path>      catalog location (env SOUNDMARK_DB_PATH)
  -store <name>   sqlite or badger (env SOUNDMARK_STORE)
`)
}

// commonFlags registers the store selection flags on fs and returns their
// destinations.
func commonFlags(fs *flag.FlagSet) (dbPath, backend *string) {
	dbPath = fs.String("db", getEnvOrDefault("SOUNDMARK_DB_PATH", storage.DefaultDBFile), "catalog path")
	backend = fs.String("store", getEnvOrDefault("SOUNDMARK_STORE", "sqlite"), "storage backend: sqlite or badger")
	return
}

func openStore(dbPath, backend string) (service.Store, error) {
	switch backend {
	case "sqlite":
		return storage.OpenSQLite(dbPath)
	case "badger":
		return storage.OpenBadger(dbPath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// splitPathArg pulls the first non-flag argument (the audio path) out of
// args so commands read naturally as "soundmark add song.wav -title ...".
func splitPathArg(args []string) (string, []string) {
	for i, arg := range args {
		if !strings.HasPrefix(arg, "-") {
			rest := make([]string, 0, len(args)-1)
			rest = append(rest, args[:i]...)
			rest = append(rest, args[i+1:]...)
			return arg, rest
		}
	}
	return "", args
}

func newService(dbPath, backend string) (*service.Service, service.Store, error) {
	store, err := openStore(dbPath, backend)
	if err != nil {
		return nil, nil, err
	}
	svc, err := service.New(service.WithStore(store))
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return svc, store, nil
}

func runAdd(args []string) error {
	wavPath, rest := splitPathArg(args)

	fs := flag.NewFlagSet("add", flag.ExitOnError)
	dbPath, backend := commonFlags(fs)
	title := fs.String("title", "", "song title (required)")
	artist := fs.String("artist", "", "artist name (required)")
	album := fs.String("album", "", "album name")
	year := fs.Int("year", 0, "release year")
	genre := fs.String("genre", "", "genre")
	fs.Parse(rest)

	if wavPath == "" {
		return fmt.Errorf("no audio file given")
	}

	pcm, sr, err := audio.LoadWAV(wavPath)
	if err != nil {
		return err
	}

	svc, store, err := newService(*dbPath, *backend)
	if err != nil {
		return err
	}
	defer store.Close()
	defer svc.Close()

	id, err := svc.Register(context.Background(), pcm, sr, model.SongMeta{
		Title:  *title,
		Artist: *artist,
		Album:  *album,
		Year:   *year,
		Genre:  *genre,
	})
	if err != nil {
		return err
	}
	fmt.Printf("registered song %d: %s — %s\n", id, *artist, *title)
	return nil
}

func runMatch(args []string) error {
	wavPath, rest := splitPathArg(args)

	fs := flag.NewFlagSet("match", flag.ExitOnError)
	dbPath, backend := commonFlags(fs)
	fs.Parse(rest)

	if wavPath == "" {
		return fmt.Errorf("no audio file given")
	}

	pcm, sr, err := audio.LoadWAV(wavPath)
	if err != nil {
		return err
	}

	svc, store, err := newService(*dbPath, *backend)
	if err != nil {
		return err
	}
	defer store.Close()
	defer svc.Close()

	match, ok, err := svc.Recognize(context.Background(), pcm, sr)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("no match")
		return nil
	}
	fmt.Printf("match: %s — %s (song %d, %d votes, %.1f%% confidence, offset %d ms)\n",
		match.Song.Artist, match.Song.Title, match.Song.ID, match.Votes, match.Confidence, match.OffsetMs)
	return nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	dbPath, backend := commonFlags(fs)
	fs.Parse(args)

	store, err := openStore(*dbPath, *backend)
	if err != nil {
		return err
	}
	defer store.Close()

	songs, err := store.ListSongs()
	if err != nil {
		return err
	}
	if len(songs) == 0 {
		fmt.Println("catalog is empty")
		return nil
	}
	for _, s := range songs {
		line := fmt.Sprintf("%4d  %s — %s", s.ID, s.Artist, s.Title)
		if s.Album != "" {
			line += fmt.Sprintf(" [%s]", s.Album)
		}
		if s.Year > 0 {
			line += fmt.Sprintf(" (%d)", s.Year)
		}
		fmt.Println(line)
	}
	return nil
}

func runDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	dbPath, backend := commonFlags(fs)
	id := fs.Uint("id", 0, "song id to delete")
	fs.Parse(args)

	if *id == 0 {
		return fmt.Errorf("-id is required")
	}

	store, err := openStore(*dbPath, *backend)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteSong(uint32(*id)); err != nil {
		return err
	}
	fmt.Printf("deleted song %d\n", *id)
	return nil
}

// runScan bulk-registers every *.wav file directly inside a directory
// (subdirectories are not searched), deriving the title from the file name.
func runScan(args []string) error {
	dir, rest := splitPathArg(args)

	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	dbPath, backend := commonFlags(fs)
	artist := fs.String("artist", "Unknown", "artist for every scanned file")
	fs.Parse(rest)

	if dir == "" {
		return fmt.Errorf("no directory given")
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.wav"))
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no .wav files in %s", dir)
	}

	svc, store, err := newService(*dbPath, *backend)
	if err != nil {
		return err
	}
	defer store.Close()
	defer svc.Close()

	p := mpb.New(mpb.WithWidth(64))
	bar := p.AddBar(int64(len(paths)),
		mpb.PrependDecorators(
			decor.Name("Scanning: "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
		),
	)

	log := logger.GetLogger()
	failed := 0
	for _, path := range paths {
		title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

		pcm, sr, err := audio.LoadWAV(path)
		if err != nil {
			log.Warnf("skipping %s: %v", path, err)
			failed++
			bar.Increment()
			continue
		}
		if _, err := svc.Register(context.Background(), pcm, sr, model.SongMeta{Title: title, Artist: *artist}); err != nil {
			log.Warnf("skipping %s: %v", path, err)
			failed++
		}
		bar.Increment()
	}
	p.Wait()

	fmt.Printf("scanned %d files, %d failed\n", len(paths), failed)
	return nil
}
